package logging

import (
	"io"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	cst "wuyrush.io/pinboard/constants"
	se "wuyrush.io/pinboard/errors"
)

// ServiceFormatter is a Formatter that:
// 1. logs the unix time in milliseconds;
// 2. logs specified service/service component name;
type ServiceFormatter struct {
	svcName string
	log.Formatter
}

// passing a mutated *log.Entry value to downstream formatter results in logs with panic level and empty
// message, hence fields are only added to Data here
func (f *ServiceFormatter) Format(e *log.Entry) ([]byte, error) {
	e.Data["epochTimeMillis"] = e.Time.UnixNano() / int64(time.Millisecond)
	e.Data["service"] = f.svcName
	return f.Formatter.Format(e)
}

// SetupLog setups service-specific logging to stdout.
func SetupLog(name string) {
	SetupLogTo(os.Stdout, name, viper.GetBool(cst.EnvVerbose))
}

// SetupLogTo setups service-specific logging to w.
func SetupLogTo(w io.Writer, name string, verbose bool) {
	log.SetOutput(w)
	// use unix timestamp instead of zonal one
	f := &ServiceFormatter{
		svcName:   name,
		Formatter: &log.JSONFormatter{DisableTimestamp: true},
	}
	log.SetFormatter(f)
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
}

// WithFuncName returns a *logrus.Entry marked with the name of function calling WithFuncName
func WithFuncName() *log.Entry {
	// get the pc of the function that calls the current function
	pc, _, _, ok := runtime.Caller(1)
	var funcName string
	if ok {
		frs := runtime.CallersFrames([]uintptr{pc})
		fr, _ := frs.Next()
		funcName = fr.Function
	}
	return log.WithField(cst.LogFieldFuncName, funcName)
}

// WithErr marks l with e's code and full cause chain
func WithErr(l *log.Entry, e *se.Err) *log.Entry {
	return l.WithFields(log.Fields{
		"errCode": e.Code,
		"trace":   e.Trace(),
	})
}
