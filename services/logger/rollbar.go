package logsvc

import (
	"fmt"
	"log"
	"net/http"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/user"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger prints to std and reports to Rollbar. Reporting is off until Enable(true).
func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetEnabled(false)
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

// Enable turns Rollbar reporting on or off. It stays off without a token.
func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled && rollbar.Token() != "")
}

// Close waits for the pending Rollbar reports.
func (l RollbarLogger) Close() {
	rollbar.Close()
}

// prepare turns the logger args into rollbar.Log args: the message, the first error,
// the *http.Request being served and a single map of custom data.
// A user.User sets the Rollbar person and adds its role to the custom data.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var (
		usrSet bool
		err    error
		req    *http.Request
	)
	extras := make(map[string]interface{})
	for _, arg := range args {
		switch val := arg.(type) {
		case user.User:
			if !usrSet && val.ID != "" { // only set one User
				rollbar.SetPerson(val.ID, val.Name, val.Email)
				extras["userRole"] = val.Role
				usrSet = true
			}
		case *http.Request:
			req = val
		case error:
			if err == nil {
				err = val
			} else {
				extras["otherErrors"] = append(toStrings(extras["otherErrors"]), val.Error())
			}
		case map[string]interface{}:
			for k, v := range val {
				extras[k] = v
			}
		default:
			extras["args"] = append(toStrings(extras["args"]), fmt.Sprintf("%+v", val))
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}

	newArgs := []interface{}{msg}
	if err != nil {
		newArgs = append(newArgs, err)
	}
	if req != nil {
		newArgs = append(newArgs, req)
	}
	if len(extras) > 0 {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func toStrings(v interface{}) []string {
	s, _ := v.([]string)
	return s
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		switch val := arg.(type) {
		case user.User:
			l.std.Printf("user: %s <%s>\n", val.ID, val.Email)
		case *http.Request:
			l.std.Printf("request: %s %s\n", val.Method, val.URL.Path)
		default:
			l.std.Printf("%+v\n", arg)
		}
	}
}

func (l RollbarLogger) report(level, msg string, args []interface{}) {
	rollbar.Log(level, l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.report(rollbar.DEBUG, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.INFO, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	l.std.Fatal(msg)
}
