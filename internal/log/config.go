package log

// LoggerConfig controls the global logger's level, line format, and the
// set of appenders it writes to.
type LoggerConfig struct {
	Level     string           `mapstructure:"level"`
	Appenders []AppenderConfig `mapstructure:"appenders"`
	Formatter *FormatterConfig `mapstructure:"formatter,omitempty"`
}

// AppenderConfig names one log destination. Type selects which Options
// fields are consulted ("console", "file", "kafka", "loki").
type AppenderConfig struct {
	Type    string                 `mapstructure:"type"`
	Level   string                 `mapstructure:"level,omitempty"`
	Options map[string]interface{} `mapstructure:"options,omitempty"`
}

// FormatterConfig configures the prefixed text formatter applied across
// every appender.
type FormatterConfig struct {
	EnableColors    bool   `mapstructure:"enable_colors,omitempty"`
	FullTimestamp   bool   `mapstructure:"full_timestamp,omitempty"`
	TimestampFormat string `mapstructure:"timestamp_format,omitempty"`
}
