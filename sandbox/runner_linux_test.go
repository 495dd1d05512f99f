//go:build linux

package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// processAlive treats zombies as dead: they hold no resources and may wait on
// a reaper the test does not control.
func processAlive(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func readPID(t *testing.T, line string) int {
	t.Helper()
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	require.NoError(t, err, "expected a pid, got %q", line)
	return pid
}

func TestRunnerKillsDescendants(t *testing.T) {
	t.Run("OnTimeout", func(t *testing.T) {
		runner, _ := newTestRunner(t, WithTimeout(500*time.Millisecond))

		s, err := runner.Execute(context.Background(), ExecuteRequest{
			Language: "shell",
			Code:     "sleep 30 &\necho $!\nwait\n",
		})
		require.NoError(t, err)

		reader := bufio.NewReader(s)
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		pid := readPID(t, line)
		assert.True(t, processAlive(pid))

		_, _ = reader.ReadString(0)
		assert.True(t, s.Wait().TimedOut)

		assert.Eventually(t, func() bool { return !processAlive(pid) }, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("AfterNormalExit", func(t *testing.T) {
		runner, root := newTestRunner(t)

		s, err := runner.Execute(context.Background(), ExecuteRequest{
			Language: "shell",
			Code:     "sleep 30 &\necho $!\n",
		})
		require.NoError(t, err)

		out := readAll(t, s)
		res := s.Wait()

		require.NotNil(t, res.ExitCode)
		assert.Equal(t, 0, *res.ExitCode)
		assert.True(t, strings.HasSuffix(out, "\n[exit 0]\n"), out)

		pid := readPID(t, strings.SplitN(out, "\n", 2)[0])
		assert.Eventually(t, func() bool { return !processAlive(pid) }, 3*time.Second, 20*time.Millisecond)
		assertEmptyDir(t, root)
	})
}

func TestRunnerAppliesFileSizeLimit(t *testing.T) {
	runner, _ := newTestRunner(t, WithMaxFileSize(4096))

	s, err := runner.Execute(context.Background(), ExecuteRequest{
		Language: "shell",
		Code:     "sleep 0.2\nhead -c 65536 /dev/zero > big.bin\necho \"status $?\"\n",
	})
	require.NoError(t, err)

	out := readAll(t, s)
	s.Wait()
	assert.NotContains(t, out, "status 0")
}

func TestRunnerCPULimitCoversEveryCore(t *testing.T) {
	runner, _ := newTestRunner(t, WithTimeout(2*time.Second))

	s, err := runner.Execute(context.Background(), ExecuteRequest{
		Language: "shell",
		Code:     "sleep 0.2\ngrep 'Max cpu time' /proc/$$/limits\n",
	})
	require.NoError(t, err)

	out := readAll(t, s)
	s.Wait()

	line, _, found := strings.Cut(out, "\n")
	require.True(t, found, out)
	fields := strings.Fields(strings.TrimPrefix(line, "Max cpu time"))
	require.GreaterOrEqual(t, len(fields), 2, line)

	want := strconv.Itoa(3 * runtime.NumCPU())
	assert.Equal(t, want, fields[0], "soft limit")
	assert.Equal(t, want, fields[1], "hard limit")
}
