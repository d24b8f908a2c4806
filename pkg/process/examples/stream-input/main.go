package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/pexec/pexec/pkg/process"
)

func main() {
	// 64 MiB streamed through the child without holding it in memory
	h := sha256.New()
	input := io.TeeReader(io.LimitReader(rand.Reader, 64<<20), h)

	p, err := process.New(
		process.WithCommand("sha256sum"),
		process.WithInputReader(input),
	)
	if err != nil {
		panic(err)
	}

	res, err := p.MustRun(context.Background())
	if err != nil {
		panic(err)
	}

	got, _, _ := strings.Cut(string(res.Stdout), " ")
	want := fmt.Sprintf("%x", h.Sum(nil))
	fmt.Printf("child: %s\nlocal: %s\nmatch: %v (took %v)\n", got, want, got == want, res.Duration)
}
