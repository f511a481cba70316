package model

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	yaml "gopkg.in/yaml.v2"
)

const (
	defaultPeriod   = 300
	defaultLookback = time.Hour
)

type Config struct {
	Targets []Target `yaml:"targets"`
}

type Target struct {
	Region    string        `yaml:"region"`
	Service   string        `yaml:"service"`
	Metric    string        `yaml:"metric"`
	Instances []string      `yaml:"instances"`
	Statistic string        `yaml:"statistic"`
	Period    int32         `yaml:"period"`
	Lookback  time.Duration `yaml:"lookback"`
	Unit      string        `yaml:"unit"`
}

// RegionResolver returns the region used for targets that do not set one.
type RegionResolver func() (string, error)

// LoadConfig reads the target file. The default region is resolved at most
// once, here, before any target runs.
func LoadConfig(configFile string, defaultRegion RegionResolver) (*Config, error) {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}
	return parseConfig(buf, defaultRegion)
}

func parseConfig(buf []byte, defaultRegion RegionResolver) (*Config, error) {
	var cfg Config
	err := yaml.Unmarshal(buf, &cfg)
	if err != nil {
		return nil, err
	}

	region := ""
	for i, target := range cfg.Targets {
		if target.Region == "" {
			if region == "" {
				region, err = defaultRegion()
				if err != nil {
					return nil, err
				}
			}
			cfg.Targets[i].Region = region
		}
		if target.Period == 0 {
			cfg.Targets[i].Period = defaultPeriod
		}
		if target.Lookback == 0 {
			cfg.Targets[i].Lookback = defaultLookback
		}
		if target.Statistic == "" {
			cfg.Targets[i].Statistic = string(Average)
		}
		if err := cfg.Targets[i].Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
	}

	return &cfg, nil
}

func (t Target) Validate() error {
	if t.Region == "" {
		return ErrMissingRegion
	}
	if _, err := ParseServiceKind(t.Service); err != nil {
		return err
	}
	if _, err := ParseStatistic(t.Statistic); err != nil {
		return err
	}
	if t.Period <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPeriod, t.Period)
	}
	if t.Lookback < 0 {
		return fmt.Errorf("%w: negative lookback %s", ErrInvalidTimeRange, t.Lookback)
	}
	return nil
}

// DefaultRegion looks at AWS_REGION first and asks the instance metadata
// service otherwise.
func DefaultRegion() (string, error) {
	envRegion := os.Getenv("AWS_REGION")
	if envRegion != "" {
		return envRegion, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}
	client := imds.NewFromConfig(cfg)
	region, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", err
	}
	return region.Region, nil
}
