package registry

import (
	"slices"
	"testing"
)

type dummyBuilder struct{}

func (dummyBuilder) Build(in BuildInput) (BuildOutput, error) { return BuildOutput{}, nil }

func TestRegisterAndLookup(t *testing.T) {
	const typ = "test_dummy_builder"
	if _, ok := Lookup(typ); ok {
		t.Skip("builder already registered by earlier test run")
	}
	RegisterBuilder(typ, dummyBuilder{})
	if _, ok := Lookup(typ); !ok {
		t.Fatalf("lookup failed for %q", typ)
	}
	if !slices.Contains(Types(), typ) {
		t.Fatalf("Types() missing %q", typ)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	const typ = "test_duplicate_builder"
	if _, ok := Lookup(typ); !ok {
		RegisterBuilder(typ, dummyBuilder{})
	}
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	RegisterBuilder(typ, dummyBuilder{})
}

func TestBuilderFunc(t *testing.T) {
	called := false
	b := BuilderFunc(func(in BuildInput) (BuildOutput, error) {
		called = in.DeviceID == "imu0"
		return BuildOutput{BusID: in.BusRefID}, nil
	})
	out, err := b.Build(BuildInput{DeviceID: "imu0", BusRefID: "i2c1"})
	if err != nil || !called || out.BusID != "i2c1" {
		t.Fatalf("BuilderFunc: out=%+v err=%v called=%v", out, err, called)
	}
}
