// Package qsettings loads the CLI settings: where batches live, which base
// configuration and records to use, and how to reach the submission
// backends and storage services.
package qsettings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Settings struct {
	JobsRoot   string        `mapstructure:"jobs_root"`
	BaseConfig string        `mapstructure:"base_config"`
	Records    string        `mapstructure:"records"`
	MotifDir   string        `mapstructure:"motif_dir"`
	Backend    string        `mapstructure:"backend"`
	LogLevel   string        `mapstructure:"log_level"`
	LogOrder   string        `mapstructure:"log_order"`
	Container  Container     `mapstructure:"container"`
	K8s        K8s           `mapstructure:"k8s"`
	Cache      Cache         `mapstructure:"cache"`
	S3         S3            `mapstructure:"s3"`
	DB         DB            `mapstructure:"db"`
	Timeout    time.Duration `mapstructure:"timeout"`

	v *viper.Viper
}

// Container configures the docker and k8s backends.
type Container struct {
	Image   string   `mapstructure:"image"`
	Mounts  []string `mapstructure:"mounts"` // host:container[:ro]
	Network string   `mapstructure:"network"`
}

type K8s struct {
	Namespace  string `mapstructure:"namespace"`
	Queue      string `mapstructure:"queue"`
	Kubeconfig string `mapstructure:"kubeconfig"`
}

// Cache configures the accounting report cache. An empty ValkeyURL keeps
// reports in memory for one process.
type Cache struct {
	ValkeyURL string        `mapstructure:"valkey_url"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type S3 struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type DB struct {
	URL string `mapstructure:"url"`
}

const (
	EnvPrefix  = "QFOLD"
	ConfigName = "qfold"
	ConfigRoot = ".qfold"

	JobsRootKey   = "jobs_root"
	BaseConfigKey = "base_config"
	RecordsKey    = "records"
	BackendKey    = "backend"
	LogLevelKey   = "log_level"
	LogOrderKey   = "log_order"
)

// Load creates Settings with their own viper instance. Without cfgFile it
// reads qfold.yaml from the working directory and merges the untracked
// .qfold/config.yaml over it. QFOLD_* environment variables win over both.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings file %s: %w", cfgFile, err)
		}
	} else {
		for _, name := range []string{ConfigName + ".yaml", ConfigName + ".yml", "." + ConfigName + ".yaml"} {
			if _, err := os.Stat(name); err == nil {
				v.SetConfigFile(name)
				if err := v.ReadInConfig(); err != nil {
					return nil, fmt.Errorf("reading settings file %s: %w", name, err)
				}
				break
			}
		}

		localPath := filepath.Join(ConfigRoot, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v.SetConfigFile(localPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("merging local settings: %w", err)
			}
		}
	}

	// Defaults also register every key, so AutomaticEnv can fill nested ones.
	setDefaults(v)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	s.normalize()
	s.v = v
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(JobsRootKey, "jobs")
	v.SetDefault(BaseConfigKey, "af3.yaml")
	v.SetDefault(RecordsKey, "tf_df.csv")
	v.SetDefault("motif_dir", "")
	v.SetDefault(BackendKey, "slurm")
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(LogOrderKey, "listing")
	v.SetDefault("timeout", "0s")
	v.SetDefault("container.image", "alphafold3:latest")
	v.SetDefault("container.mounts", []string{})
	v.SetDefault("container.network", "bridge")
	v.SetDefault("k8s.namespace", "default")
	v.SetDefault("k8s.queue", "")
	v.SetDefault("k8s.kubeconfig", "")
	v.SetDefault("cache.valkey_url", "")
	v.SetDefault("cache.ttl", "168h")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "qfold")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.use_ssl", false)
	v.SetDefault("db.url", "")
}

func (s *Settings) normalize() {
	if s.JobsRoot != "" {
		s.JobsRoot = filepath.Clean(s.JobsRoot)
	}
}

// BindFlags binds flags (settings key -> flag name) and re-reads the
// settings, so flags given on the command line win over files and env.
func (s *Settings) BindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := s.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	if err := s.v.Unmarshal(s); err != nil {
		return fmt.Errorf("unmarshaling settings: %w", err)
	}
	s.normalize()
	return nil
}

func (s *Settings) Get(key string) interface{} {
	if s.v == nil {
		return nil
	}
	return s.v.Get(key)
}

func (s *Settings) GetString(key string) string {
	if s.v == nil {
		return ""
	}
	return s.v.GetString(key)
}

// Viper returns the underlying viper instance, e.g. for flag binding.
func (s *Settings) Viper() *viper.Viper {
	return s.v
}

// ConfigFileUsed returns the settings file that was read, if any.
func (s *Settings) ConfigFileUsed() string {
	if s.v == nil {
		return ""
	}
	return s.v.ConfigFileUsed()
}
