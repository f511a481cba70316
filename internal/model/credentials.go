package model

import "fmt"

// ClientConfig is what a caller passes to every operation.
type ClientConfig struct {
	AccessKey string
	SecretKey string
	Region    string
}

// Credentials is either ExplicitCredentials or AmbientCredentials.
type Credentials interface {
	isCredentials()
}

type ExplicitCredentials struct {
	AccessKey string
	SecretKey string
}

// AmbientCredentials leaves credential discovery to the AWS default chain
// (environment, shared config, IMDS, ...).
type AmbientCredentials struct{}

func (ExplicitCredentials) isCredentials() {}
func (AmbientCredentials) isCredentials() {}

func (c ClientConfig) Validate() error {
	if c.Region == "" {
		return ErrMissingRegion
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return ErrPartialCredentials
	}
	return nil
}

func (c ClientConfig) Credentials() Credentials {
	if c.AccessKey != "" && c.SecretKey != "" {
		return ExplicitCredentials{
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
		}
	}
	return AmbientCredentials{}
}

func (c ClientConfig) String() string {
	kind := "ambient"
	if _, ok := c.Credentials().(ExplicitCredentials); ok {
		kind = "explicit"
	}
	return fmt.Sprintf("region=%s credentials=%s", c.Region, kind)
}
