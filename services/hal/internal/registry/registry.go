// services/hal/internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"imunode-go/services/hal/internal/halcore"
)

// BuildInput is passed to a device builder.
type BuildInput struct {
	Ctx        context.Context
	Buses      halcore.I2CBusFactory
	Log        logrus.FieldLogger
	DeviceID   string
	Type       string
	ParamsJSON any
	BusRefType string // e.g. "i2c"
	BusRefID   string // e.g. "i2c1"
}

// BuildOutput describes a constructed device.
type BuildOutput struct {
	Adaptor     halcore.Adaptor
	BusID       string        // "" if not on a shared bus
	SampleEvery time.Duration // 0 if not a periodic producer
}

// Builder creates an adaptor from config and factories.
type Builder interface {
	Build(in BuildInput) (BuildOutput, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(in BuildInput) (BuildOutput, error)

func (f BuilderFunc) Build(in BuildInput) (BuildOutput, error) { return f(in) }

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

func RegisterBuilder(deviceType string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := builders[deviceType]; exists {
		panic(fmt.Sprintf("device builder already registered for type %q", deviceType))
	}
	builders[deviceType] = b
}

func Lookup(deviceType string) (Builder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := builders[deviceType]
	return b, ok
}

// Types lists registered device types.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(builders))
	for t := range builders {
		out = append(out, t)
	}
	return out
}
