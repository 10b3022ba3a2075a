package internal

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputBufferBatches(t *testing.T) {
	var dst bytes.Buffer
	out := NewSharedOutput(&dst)
	buf := NewOutputBuffer(out, 4)

	for i := 0; i < 10; i++ {
		require.NoError(t, buf.WriteLine(fmt.Sprintf("line %d", i)))
		switch {
		case i < 4:
			require.Zero(t, dst.Len())
		case i < 8:
			require.Equal(t, 4, strings.Count(dst.String(), "\n"))
		default:
			require.Equal(t, 8, strings.Count(dst.String(), "\n"))
		}
	}

	require.NoError(t, buf.Close())
	want := make([]string, 10)
	for i := range want {
		want[i] = fmt.Sprintf("line %d\n", i)
	}
	require.Equal(t, strings.Join(want, ""), dst.String())

	require.NoError(t, buf.Close())
	require.Equal(t, 10, strings.Count(dst.String(), "\n"))
}

func TestOutputBufferConcurrent(t *testing.T) {
	var dst bytes.Buffer
	out := NewSharedOutput(&dst)

	const tasks, perTask = 16, 1000
	var wg sync.WaitGroup
	for g := 0; g < tasks; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			buf := NewOutputBuffer(out, 7)
			defer buf.Close()
			for i := 0; i < perTask; i++ {
				if err := buf.WriteLine(fmt.Sprintf("%d\t%d", g, i)); err != nil {
					t.Error(err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(dst.String(), "\n"), "\n")
	require.Len(t, lines, tasks*perTask)
	next := make([]int, tasks)
	for _, line := range lines {
		var g, i int
		_, err := fmt.Sscanf(line, "%d\t%d", &g, &i)
		require.NoError(t, err, line)
		// every task's lines come out whole and in order
		require.Equal(t, next[g], i)
		next[g]++
	}
}

func TestOutputBufferWriteError(t *testing.T) {
	out := NewSharedOutput(failingWriter{})
	buf := NewOutputBuffer(out, 1)
	require.NoError(t, buf.WriteLine("a"))
	require.ErrorIs(t, buf.WriteLine("b"), errWriteFailed)
}
