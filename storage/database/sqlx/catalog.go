package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/catalog"
)

const (
	categoryColumns     = `id, name, slug, created_at`
	professionalColumns = `id, name, specialty, photo_url, created_at`
	videoColumns        = `id, slug, title, description, price, type, video_url, cover_image_url, article_content,
		category_id, professional_id, created_at, updated_at`

	videoSelect = `SELECT
		v.id, v.slug, v.title, v.description, v.price, v.type, v.video_url, v.cover_image_url, v.article_content,
		v.category_id, v.professional_id, v.created_at, v.updated_at,
		c.id AS "category.id", c.name AS "category.name", c.slug AS "category.slug", c.created_at AS "category.created_at",
		p.id AS "professional.id", p.name AS "professional.name", p.specialty AS "professional.specialty",
		p.photo_url AS "professional.photo_url", p.created_at AS "professional.created_at"
		FROM videos v
		JOIN categories c ON c.id = v.category_id
		JOIN professionals p ON p.id = v.professional_id`
)

// videoOrderingFields maps the orderable fields to their column
var videoOrderingFields = map[string]string{
	"created_at": "v.created_at",
	"price":      "v.price",
	"title":      "v.title",
}

type (
	catalogRepository struct {
		repository
	}

	videoRow struct {
		catalog.Video
		Cat catalog.Category     `db:"category"`
		Pro catalog.Professional `db:"professional"`
	}
)

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(exec core.DBExecutor) *catalogRepository {
	return &catalogRepository{repository{exec: exec}}
}

func (row videoRow) video() catalog.Video {
	vid := row.Video
	cat, pro := row.Cat, row.Pro
	vid.Category = &cat
	vid.Professional = &pro
	return vid
}

// Categories

func (repo catalogRepository) CreateCategory(ctx context.Context, cat catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	q := `INSERT INTO categories (` + categoryColumns + `) VALUES (:id, :name, :slug, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, cat); err != nil {
		return catalog.Category{}, trapUniqueErr(err, catalog.ErrCategoryExists.Message, "inserting category")
	}
	return cat, nil
}

func (repo catalogRepository) QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Category, error) {
	cats := make([]catalog.Category, 0)
	q := `SELECT ` + categoryColumns + ` FROM categories ORDER BY name ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &cats, q); err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	return cats, nil
}

func (repo catalogRepository) GetCategoryByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Category, error) {
	if !isUUID(id) {
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	var cat catalog.Category
	q := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cat, q, id); err != nil {
		return catalog.Category{}, trapNoRowsErr(err, catalog.ErrCategoryNotFound, "finding category by ID")
	}
	return cat, nil
}

func (repo catalogRepository) GetCategoryBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (catalog.Category, error) {
	var cat catalog.Category
	q := `SELECT ` + categoryColumns + ` FROM categories WHERE slug = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &cat, q, slug); err != nil {
		return catalog.Category{}, trapNoRowsErr(err, catalog.ErrCategoryNotFound, "finding category by slug")
	}
	return cat, nil
}

func (repo catalogRepository) CategoryNameExists(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM categories WHERE LOWER(name) = LOWER($1))`
	return repo.exists(ctx, repo.getExec(exec), "checking category name", q, name)
}

func (repo catalogRepository) CategorySlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM categories WHERE slug = $1)`
	return repo.exists(ctx, repo.getExec(exec), "checking category slug", q, slug)
}

// Professionals

func (repo catalogRepository) CreateProfessional(ctx context.Context, pro catalog.Professional, exec ...core.DBExecutor) (catalog.Professional, error) {
	q := `INSERT INTO professionals (` + professionalColumns + `) VALUES (:id, :name, :specialty, :photo_url, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, pro); err != nil {
		return catalog.Professional{}, errors.Wrap(err, "inserting professional")
	}
	return pro, nil
}

func (repo catalogRepository) QueryProfessionals(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Professional, error) {
	pros := make([]catalog.Professional, 0)
	q := `SELECT ` + professionalColumns + ` FROM professionals ORDER BY name ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &pros, q); err != nil {
		return nil, errors.Wrap(err, "querying professionals")
	}
	return pros, nil
}

func (repo catalogRepository) GetProfessionalByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Professional, error) {
	if !isUUID(id) {
		return catalog.Professional{}, catalog.ErrProfessionalNotFound
	}
	var pro catalog.Professional
	q := `SELECT ` + professionalColumns + ` FROM professionals WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &pro, q, id); err != nil {
		return catalog.Professional{}, trapNoRowsErr(err, catalog.ErrProfessionalNotFound, "finding professional by ID")
	}
	return pro, nil
}

// Videos

func (repo catalogRepository) CreateVideo(ctx context.Context, vid catalog.Video, exec ...core.DBExecutor) (catalog.Video, error) {
	q := `INSERT INTO videos (` + videoColumns + `)
		VALUES (:id, :slug, :title, :description, :price, :type, :video_url, :cover_image_url, :article_content,
		:category_id, :professional_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, vid); err != nil {
		return catalog.Video{}, trapUniqueErr(err, catalog.ErrSlugExists.Message, "inserting video")
	}
	return vid, nil
}

func (repo catalogRepository) UpdateVideo(ctx context.Context, vid catalog.Video, exec ...core.DBExecutor) (catalog.Video, error) {
	q := `UPDATE videos SET
		slug = :slug, title = :title, description = :description, price = :price, type = :type,
		video_url = :video_url, cover_image_url = :cover_image_url, article_content = :article_content,
		category_id = :category_id, professional_id = :professional_id, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, vid)
	if err != nil {
		return catalog.Video{}, trapUniqueErr(err, catalog.ErrSlugExists.Message, "updating video")
	}
	if err = checkAffected(res, catalog.ErrVideoNotFound, "updating video"); err != nil {
		return catalog.Video{}, err
	}
	return vid, nil
}

func (repo catalogRepository) getVideo(ctx context.Context, exec core.DBExecutor, where string, arg interface{}) (catalog.Video, error) {
	var row videoRow
	if err := sqlx.GetContext(ctx, exec, &row, videoSelect+` WHERE `+where, arg); err != nil {
		return catalog.Video{}, trapNoRowsErr(err, catalog.ErrVideoNotFound, "finding video")
	}
	return row.video(), nil
}

func (repo catalogRepository) GetVideoByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Video, error) {
	if !isUUID(id) {
		return catalog.Video{}, catalog.ErrVideoNotFound
	}
	return repo.getVideo(ctx, repo.getExec(exec), `v.id = $1`, id)
}

func (repo catalogRepository) GetVideoBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (catalog.Video, error) {
	return repo.getVideo(ctx, repo.getExec(exec), `v.slug = $1`, slug)
}

func (repo catalogRepository) QueryVideos(ctx context.Context, filter catalog.VideoFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]catalog.Video, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.CategorySlug != "" {
		conds = append(conds, `c.slug = ?`)
		args = append(args, filter.CategorySlug)
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		conds = append(conds, `(v.title ILIKE ? OR v.description ILIKE ?)`)
		args = append(args, val, val)
	}
	if filter.Type != "" {
		conds = append(conds, `v.type = ?`)
		args = append(args, strings.ToUpper(filter.Type))
	}

	q := videoSelect
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := videoOrderingFields[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, `v.created_at DESC`)
	}
	q += ` ORDER BY ` + strings.Join(orderList, `, `)

	var rows []videoRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, sqlx.Rebind(sqlx.DOLLAR, q), args...); err != nil {
		return nil, errors.Wrap(err, "querying videos")
	}
	vids := make([]catalog.Video, 0, len(rows))
	for _, row := range rows {
		vids = append(vids, row.video())
	}
	return vids, nil
}

func (repo catalogRepository) VideoSlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error) {
	if excludedID == "" {
		q := `SELECT EXISTS (SELECT 1 FROM videos WHERE slug = $1)`
		return repo.exists(ctx, repo.getExec(exec), "checking video slug", q, slug)
	}
	q := `SELECT EXISTS (SELECT 1 FROM videos WHERE slug = $1 AND id <> $2)`
	return repo.exists(ctx, repo.getExec(exec), "checking video slug", q, slug, excludedID)
}
