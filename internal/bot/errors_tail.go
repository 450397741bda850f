package bot

import (
	"bufio"
	"os"
)

// TailLastNLines returns the last n lines of path in order.
func TailLastNLines(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// errors.log is truncated on every start, so a full scan stays cheap
	ring := make([]string, n)
	count := 0
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		ring[count%n] = s.Text()
		count++
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if count <= n {
		return ring[:count], nil
	}
	start := count % n
	return append(ring[start:], ring[:start]...), nil
}
