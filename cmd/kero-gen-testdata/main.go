// Command kero-gen-testdata writes a small sample .kero file to stdout's
// working directory, for manual inspection and integration testing. It is
// not a production tool: no flags, no configuration, fixed parameters.
package main

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"

	kero "github.com/kero-format/kero"
)

const (
	outPath  = "testdata.kero"
	k        = uint64(8)
	m        = uint64(3)
	max      = uint64(4)
	dataSize = uint64(1)
	nBlocks  = 64
)

var bases = []byte("ACGT")

func newRand() *rand.Rand {
	var seedBytes [8]byte
	if _, err := crand.Read(seedBytes[:]); err != nil {
		panic(err)
	}
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return rand.New(rand.NewSource(seed))
}

func randSeq(rng *rand.Rand, n int) []byte {
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = bases[rng.Intn(len(bases))]
	}
	return seq
}

func main() {
	rng := newRand()

	f, err := kero.Create(outPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create:", err)
		os.Exit(1)
	}

	if err := f.WriteMetadata([]byte("kero-gen-testdata sample")); err != nil {
		fmt.Fprintln(os.Stderr, "write metadata:", err)
		os.Exit(1)
	}

	gv, err := kero.NewGVSection(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "new gv:", err)
		os.Exit(1)
	}
	gv.Set("k", k)
	gv.Set("m", m)
	gv.Set("max", max)
	gv.Set("data_size", dataSize)
	if err := gv.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close gv:", err)
		os.Exit(1)
	}

	raw, err := kero.NewRawSection(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "new raw:", err)
		os.Exit(1)
	}
	for i := 0; i < nBlocks; i++ {
		nKmers := uint64(1 + rng.Intn(int(max)))
		seq := randSeq(rng, int(nKmers+k-1))
		data := make([]byte, dataSize*nKmers)
		if _, err := rng.Read(data); err != nil {
			panic(err)
		}
		if err := raw.WriteBlock(seq, data); err != nil {
			fmt.Fprintln(os.Stderr, "write raw block:", err)
			os.Exit(1)
		}
	}
	if err := raw.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close raw:", err)
		os.Exit(1)
	}

	for g := 0; g < 4; g++ {
		mini, err := kero.NewMinimizerSection(f)
		if err != nil {
			fmt.Fprintln(os.Stderr, "new minimizer:", err)
			os.Exit(1)
		}
		miniSeq := randSeq(rng, int(m))
		if err := mini.WriteMinimizer(miniSeq); err != nil {
			fmt.Fprintln(os.Stderr, "write minimizer key:", err)
			os.Exit(1)
		}
		for i := 0; i < nBlocks/4; i++ {
			nKmers := uint64(1 + rng.Intn(int(max)))
			full := nKmers + k - 1
			miniPos := uint64(rng.Intn(int(full - m + 1)))
			prefix := randSeq(rng, int(miniPos))
			suffix := randSeq(rng, int(full-miniPos-m))
			fullSeq := append(append(append([]byte{}, prefix...), miniSeq...), suffix...)
			data := make([]byte, dataSize*nKmers)
			if _, err := rng.Read(data); err != nil {
				panic(err)
			}
			if err := mini.WriteCompactedSequence(fullSeq, miniPos, data); err != nil {
				fmt.Fprintln(os.Stderr, "write minimizer block:", err)
				os.Exit(1)
			}
		}
		if err := mini.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "close minimizer:", err)
			os.Exit(1)
		}
	}

	if err := f.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close file:", err)
		os.Exit(1)
	}
	fmt.Println("wrote", outPath)
}
