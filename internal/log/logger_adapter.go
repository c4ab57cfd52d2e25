package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

// Entry returns the underlying *logrus.Entry for packages that need
// logrus's native field-chaining API directly (internal/pipeline's task
// types take a *logrus.Entry rather than the Logger interface, since they
// are constructed once per task and chain WithField at construction time).
func Entry() *logrus.Entry {
	return logger.(*logrusAdapter).entry
}

func initByConfig(cfg *LoggerConfig) error {
	l := logrus.New()
	l.SetFormatter(buildFormatter(cfg.Formatter))

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	mw := NewMultiWriter()
	if len(cfg.Appenders) == 0 {
		mw.Add(os.Stdout)
	}
	for _, a := range cfg.Appenders {
		if err := addAppender(mw, a); err != nil {
			return fmt.Errorf("log: appender %q: %w", a.Type, err)
		}
	}
	l.SetOutput(mw)

	logger = &logrusAdapter{
		entry: logrus.NewEntry(l),
	}
	return nil
}

func buildFormatter(cfg *FormatterConfig) logrus.Formatter {
	f := &prefixed.TextFormatter{}
	if cfg == nil {
		return f
	}
	f.DisableColors = !cfg.EnableColors
	f.FullTimestamp = cfg.FullTimestamp
	if cfg.TimestampFormat != "" {
		f.TimestampFormat = cfg.TimestampFormat
	}
	return f
}

func addAppender(mw *MultiWriter, a AppenderConfig) error {
	switch a.Type {
	case "console", "stdout", "":
		mw.Add(os.Stdout)
		return nil

	case "file":
		var opt FileAppenderOpt
		if err := decodeOptions(a.Options, &opt); err != nil {
			return err
		}
		mw.AddFileAppender(opt)
		return nil

	case "kafka":
		var opt KafkaAppenderOpt
		if err := decodeOptions(a.Options, &opt); err != nil {
			return err
		}
		mw.AddKafkaAppender(opt)
		return nil

	case "loki":
		var cfg LokiConfig
		if err := decodeOptions(a.Options, &cfg); err != nil {
			return err
		}
		writer, err := NewLokiWriter(cfg)
		if err != nil {
			return err
		}
		mw.Add(writer)
		return nil

	default:
		return fmt.Errorf("unknown appender type %q", a.Type)
	}
}

func (l *logrusAdapter) Print(args ...interface{})                 { l.entry.Print(args...) }
func (l *logrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) Panic(args ...interface{})                 { l.entry.Panic(args...) }
func (l *logrusAdapter) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusAdapter) IsInfoEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.InfoLevel)
}
