package main

import (
	"io"
	"os"
	"testing"
)

func TestReplicateFansOutToAllWriters(t *testing.T) {
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	outR1, outW1, _ := os.Pipe()
	outR2, outW2, _ := os.Pipe()

	done := make(chan error, 1)
	go func() { done <- replicate(inR, []io.Writer{outW1, outW2}) }()

	if _, err := inW.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	inW.Close()

	if err := <-done; err != nil {
		t.Fatalf("replicate: %v", err)
	}
	outW1.Close()
	outW2.Close()

	got1, _ := io.ReadAll(outR1)
	got2, _ := io.ReadAll(outR2)
	if string(got1) != "hello" || string(got2) != "hello" {
		t.Errorf("outputs = %q, %q, want both %q", got1, got2, "hello")
	}
}

func TestReplicateDropsFailingWriterAndContinues(t *testing.T) {
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	goodR, goodW, _ := os.Pipe()
	badR, badW, _ := os.Pipe()
	badR.Close() // closing the read end makes writes to badW fail

	done := make(chan error, 1)
	go func() { done <- replicate(inR, []io.Writer{badW, goodW}) }()

	inW.Write([]byte("x"))
	inW.Close()

	if err := <-done; err != nil {
		t.Fatalf("replicate: %v", err)
	}
	goodW.Close()
	got, _ := io.ReadAll(goodR)
	if string(got) != "x" {
		t.Errorf("good writer got %q, want %q", got, "x")
	}
}
