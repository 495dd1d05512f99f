// Package sandbox runs untrusted code snippets as short-lived processes.
//
// Each execution gets a private temporary workspace holding the source file,
// one interpreter process whose stdout and stderr are merged into a single
// live Stream, and a hard wall-clock limit. When the limit fires, the caller
// goes away or the stream is closed, the whole process group is killed. The
// stream always ends with an exit marker line and the workspace is removed
// before the execution counts as done.
//
// Processes are spawned either directly on the host (LocalBackend) or inside
// a throwaway docker or podman container (ContainerBackend). A Runner bounds
// how many executions run at once.
//
// Usage:
//
//	runner, err := sandbox.NewRunnerFromConfig(logger, cfg)
//	stream, err := runner.Execute(ctx, sandbox.ExecuteRequest{
//	    Language: "python",
//	    Code:     "print('Hello, World!')",
//	})
//	defer stream.Close()
//	_, err = io.Copy(os.Stdout, stream)
//	result := stream.Wait()
package sandbox
