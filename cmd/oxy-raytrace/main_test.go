package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/scene"
)

func TestCompileWritesSceneBlock(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cornell.wgsl")
	if err := newApp().Run([]string{"oxy-raytrace", "compile", "--out", out, "cornell"}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	d, err := scene.Build(scene.PresetCornell, 1)
	if err != nil {
		t.Fatal(err)
	}
	want, err := scene.Compile(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Errorf("compiled block differs from scene.Compile")
	}
}

func TestCompileArgumentErrors(t *testing.T) {
	cases := [][]string{
		{"oxy-raytrace", "compile"},
		{"oxy-raytrace", "compile", "teapot"},
		{"oxy-raytrace", "validate", "teapot"},
	}
	for _, args := range cases {
		if err := newApp().Run(args); err == nil {
			t.Errorf("%s: expected an error", strings.Join(args[1:], " "))
		}
	}
}

func TestBadLogLevel(t *testing.T) {
	if err := newApp().Run([]string{"oxy-raytrace", "--log-level", "loud", "scenes"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestValidateEveryPreset(t *testing.T) {
	if err := newApp().Run([]string{"oxy-raytrace", "validate"}); err != nil {
		t.Fatal(err)
	}
}
