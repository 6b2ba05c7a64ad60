// Command ptee replicates bytes from one fd to N fds (§6: "ptee -r <in_fd>
// <out_fd>+"). It is the fan-out collaborator a pipexec graph wires into a
// "{P:1>T:0}"-style edge. Unlike the original C implementation (which
// always reads fd 0), this rewrite takes the input fd as an explicit flag
// so a ptee node can be wired onto any fd number the graph grammar assigns
// it, not only 0.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ptee", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: ptee -r <in_fd> <out_fd>+")
		fs.PrintDefaults()
	}
	inFD := fs.Int("r", -1, "fd to read from")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if *inFD < 0 {
		fs.Usage()
		return 1
	}

	outs, err := openFiles(fs.Args(), "out")
	if err != nil {
		fmt.Fprintln(os.Stderr, "ptee:", err)
		return 1
	}
	if len(outs) == 0 {
		fs.Usage()
		return 1
	}

	in := os.NewFile(uintptr(*inFD), "in")
	writers := make([]io.Writer, len(outs))
	for i, f := range outs {
		writers[i] = f
	}

	if err := replicate(in, writers); err != nil {
		fmt.Fprintln(os.Stderr, "ptee:", err)
		return 1
	}
	return 0
}

func openFiles(fdArgs []string, label string) ([]*os.File, error) {
	files := make([]*os.File, 0, len(fdArgs))
	for _, a := range fdArgs {
		fd, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("bad %s fd %q: %w", label, a, err)
		}
		files = append(files, os.NewFile(uintptr(fd), label))
	}
	return files, nil
}

// replicate copies from in to every writer until in reaches EOF. A writer
// whose Write fails is dropped from the fan-out set (closed, if it's a
// file) and the copy continues with whatever outputs remain — the original
// C implementation does the same rather than aborting the whole replicate
// loop over one dead consumer.
func replicate(in *os.File, outs []io.Writer) error {
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			for i, w := range outs {
				if w == nil {
					continue
				}
				if _, werr := w.Write(buf[:n]); werr != nil {
					fmt.Fprintf(os.Stderr, "ptee: write error, dropping output: %v\n", werr)
					if f, ok := w.(*os.File); ok {
						f.Close()
					}
					outs[i] = nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
