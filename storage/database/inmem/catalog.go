package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/catalog"
)

type catalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db}
}

// Categories

func (repo *catalogRepository) CreateCategory(ctx context.Context, cat catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	defer repo.db.lockWrite(exec)()

	for _, c := range repo.db.data.categories {
		if c.Slug == cat.Slug || strings.EqualFold(c.Name, cat.Name) {
			return catalog.Category{}, core.NewConflictError(catalog.ErrCategoryExists.Message)
		}
	}
	repo.db.data.categories[cat.ID] = cat
	return cat, nil
}

func (repo *catalogRepository) QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cats := make([]catalog.Category, 0, len(repo.db.data.categories))
	for _, c := range repo.db.data.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

func (repo *catalogRepository) GetCategoryByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cat, ok := repo.db.data.categories[id]; ok {
		return cat, nil
	}
	return catalog.Category{}, catalog.ErrCategoryNotFound
}

func (repo *catalogRepository) GetCategoryBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (catalog.Category, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cat := range repo.db.data.categories {
		if cat.Slug == slug {
			return cat, nil
		}
	}
	return catalog.Category{}, catalog.ErrCategoryNotFound
}

func (repo *catalogRepository) CategoryNameExists(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cat := range repo.db.data.categories {
		if strings.EqualFold(cat.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *catalogRepository) CategorySlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	_, err := repo.GetCategoryBySlug(ctx, slug)
	return err == nil, nil
}

// Professionals

func (repo *catalogRepository) CreateProfessional(ctx context.Context, pro catalog.Professional, exec ...core.DBExecutor) (catalog.Professional, error) {
	defer repo.db.lockWrite(exec)()

	repo.db.data.professionals[pro.ID] = pro
	return pro, nil
}

func (repo *catalogRepository) QueryProfessionals(ctx context.Context, exec ...core.DBExecutor) ([]catalog.Professional, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	pros := make([]catalog.Professional, 0, len(repo.db.data.professionals))
	for _, p := range repo.db.data.professionals {
		pros = append(pros, p)
	}
	sort.Slice(pros, func(i, j int) bool { return pros[i].Name < pros[j].Name })
	return pros, nil
}

func (repo *catalogRepository) GetProfessionalByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Professional, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if pro, ok := repo.db.data.professionals[id]; ok {
		return pro, nil
	}
	return catalog.Professional{}, catalog.ErrProfessionalNotFound
}

// Videos

// withRelations must be called with the read lock held.
func (repo *catalogRepository) withRelations(vid catalog.Video) catalog.Video {
	if cat, ok := repo.db.data.categories[vid.CategoryID]; ok {
		vid.Category = &cat
	}
	if pro, ok := repo.db.data.professionals[vid.ProfessionalID]; ok {
		vid.Professional = &pro
	}
	return vid
}

func (repo *catalogRepository) slugTaken(slug, excludedID string) bool {
	for _, v := range repo.db.data.videos {
		if v.Slug == slug && v.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *catalogRepository) CreateVideo(ctx context.Context, vid catalog.Video, exec ...core.DBExecutor) (catalog.Video, error) {
	defer repo.db.lockWrite(exec)()

	if repo.slugTaken(vid.Slug, "") {
		return catalog.Video{}, core.NewConflictError(catalog.ErrSlugExists.Message)
	}
	vid.Category, vid.Professional = nil, nil
	repo.db.data.videos[vid.ID] = vid
	return vid, nil
}

func (repo *catalogRepository) UpdateVideo(ctx context.Context, vid catalog.Video, exec ...core.DBExecutor) (catalog.Video, error) {
	defer repo.db.lockWrite(exec)()

	if _, ok := repo.db.data.videos[vid.ID]; !ok {
		return catalog.Video{}, catalog.ErrVideoNotFound
	}
	if repo.slugTaken(vid.Slug, vid.ID) {
		return catalog.Video{}, core.NewConflictError(catalog.ErrSlugExists.Message)
	}
	vid.Category, vid.Professional = nil, nil
	repo.db.data.videos[vid.ID] = vid
	return vid, nil
}

func (repo *catalogRepository) GetVideoByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Video, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if vid, ok := repo.db.data.videos[id]; ok {
		return repo.withRelations(vid), nil
	}
	return catalog.Video{}, catalog.ErrVideoNotFound
}

func (repo *catalogRepository) GetVideoBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (catalog.Video, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, vid := range repo.db.data.videos {
		if vid.Slug == slug {
			return repo.withRelations(vid), nil
		}
	}
	return catalog.Video{}, catalog.ErrVideoNotFound
}

func (repo *catalogRepository) QueryVideos(ctx context.Context, filter catalog.VideoFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]catalog.Video, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	vids := make([]catalog.Video, 0)
	for _, v := range repo.db.data.videos {
		v = repo.withRelations(v)
		if filter.CategorySlug != "" && (v.Category == nil || v.Category.Slug != filter.CategorySlug) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(v.Title), search) &&
			!strings.Contains(strings.ToLower(v.Description), search) {
			continue
		}
		if filter.Type != "" && !strings.EqualFold(v.Type, filter.Type) {
			continue
		}
		vids = append(vids, v)
	}

	ord := core.DBOrdering{Field: "created_at"}
	for _, o := range ordering {
		if o.Field == "created_at" || o.Field == "price" || o.Field == "title" {
			ord = o
			break
		}
	}
	sort.SliceStable(vids, func(i, j int) bool {
		a, b := vids[i], vids[j]
		if !ord.Ascending {
			a, b = b, a
		}
		switch ord.Field {
		case "price":
			return a.Price < b.Price
		case "title":
			return a.Title < b.Title
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	return vids, nil
}

func (repo *catalogRepository) VideoSlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.slugTaken(slug, excludedID), nil
}
