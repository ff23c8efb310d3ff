package config

import (
	"os"
	"sync"
)

// DevelopmentEnvVar switches the process into development mode when set to
// "1" or "true".
const DevelopmentEnvVar = "UWECECA_DEVELOPMENT"

// Environment distinguishes development from production.
type Environment uint8

const (
	Production Environment = iota
	Development
)

func (e Environment) String() string {
	if e == Development {
		return "development"
	}
	return "production"
}

// buildID is overridden at link time:
//
//	go build -ldflags "-X github.com/uwececa/dblayer/internal/config.buildID=$(git rev-parse --short HEAD)"
var buildID = "dev"

// BuildID returns the identifier of the running build.
func BuildID() string {
	return buildID
}

var environment = sync.OnceValue(func() Environment {
	return ParseEnvironment(os.Getenv(DevelopmentEnvVar))
})

// ParseEnvironment interprets a raw DevelopmentEnvVar value.
func ParseEnvironment(raw string) Environment {
	switch raw {
	case "1", "true":
		return Development
	default:
		return Production
	}
}

// Current returns the process environment. It is read once; later changes
// to the variable are not observed.
func Current() Environment {
	return environment()
}

// IsDevelopment reports whether UWECECA_DEVELOPMENT was "1" or "true" at
// first use.
func IsDevelopment() bool {
	return Current() == Development
}

// IsProduction is the negation of IsDevelopment.
func IsProduction() bool {
	return Current() == Production
}
