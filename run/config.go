package run

import (
	"github.com/c2h5oh/datasize"
	"github.com/relex/gotils/logger"
	"github.com/spf13/viper"
)

// Config is the server configuration, constructed once at startup and passed by
// reference into every component
type Config struct {
	Port             int
	MaxClients       int
	BufferSize       int
	WorkerCount      int
	StorageType      string
	StorageDirectory string
	StorageCompress  bool
	LogFormat        string
	MaxMessageSize   datasize.ByteSize
}

// configuration keys and defaults
const (
	keyPort             = "server.port"
	keyMaxClients       = "server.maxClients"
	keyBufferSize       = "buffer.size"
	keyWorkerCount      = "thread.pool.size"
	keyStorageType      = "storage.type"
	keyStorageDirectory = "storage.directory"
	keyStorageCompress  = "storage.compress"
	keyLogFormat        = "log.format"
	keyMaxMessageSize   = "limits.maxMessageSize"
)

func setDefaults(parser *viper.Viper) {
	parser.SetDefault(keyPort, 8080)
	parser.SetDefault(keyMaxClients, 50)
	parser.SetDefault(keyBufferSize, 1000)
	parser.SetDefault(keyWorkerCount, 10)
	parser.SetDefault(keyStorageType, "file")
	parser.SetDefault(keyStorageDirectory, "./logs")
	parser.SetDefault(keyStorageCompress, false)
	parser.SetDefault(keyLogFormat, "text")
	parser.SetDefault(keyMaxMessageSize, "10000")
}

// LoadConfig loads the configuration file ("properties" or "yaml", detected by
// extension). A missing or broken file logs a warning and yields the built-in defaults;
// the server always starts.
func LoadConfig(path string) Config {
	clogger := logger.WithField("component", "Config")

	parser := viper.New()
	setDefaults(parser)
	if path != "" {
		parser.SetConfigFile(path)
		if err := parser.ReadInConfig(); err != nil {
			clogger.Warnf("failed to load configuration from %s, using defaults: %s", path, err.Error())
		} else {
			clogger.Infof("loaded configuration from %s", path)
		}
	}

	config := Config{
		Port:             parser.GetInt(keyPort),
		MaxClients:       parser.GetInt(keyMaxClients),
		BufferSize:       parser.GetInt(keyBufferSize),
		WorkerCount:      parser.GetInt(keyWorkerCount),
		StorageType:      parser.GetString(keyStorageType),
		StorageDirectory: parser.GetString(keyStorageDirectory),
		StorageCompress:  parser.GetBool(keyStorageCompress),
		LogFormat:        parser.GetString(keyLogFormat),
	}

	if err := config.MaxMessageSize.UnmarshalText([]byte(parser.GetString(keyMaxMessageSize))); err != nil {
		clogger.Warnf("invalid %s, using 10000 bytes: %s", keyMaxMessageSize, err.Error())
		config.MaxMessageSize = datasize.ByteSize(10000)
	}
	if config.StorageType != "file" {
		clogger.Warnf("unsupported %s '%s', only 'file' is defined", keyStorageType, config.StorageType)
		config.StorageType = "file"
	}
	if config.LogFormat != "text" {
		clogger.Warnf("unsupported %s '%s', only 'text' is defined", keyLogFormat, config.LogFormat)
		config.LogFormat = "text"
	}
	if config.BufferSize <= 0 {
		clogger.Warnf("invalid %s %d, using 1000", keyBufferSize, config.BufferSize)
		config.BufferSize = 1000
	}
	if config.WorkerCount <= 0 {
		clogger.Warnf("invalid %s %d, using 10", keyWorkerCount, config.WorkerCount)
		config.WorkerCount = 10
	}
	return config
}
