package main

import (
	"runtime"

	"github.com/drgolem/musicviz/cmd"
)

func init() {
	// GLFW and OpenGL calls must come from the main thread
	runtime.LockOSThread()
}

func main() {
	cmd.Execute()
}
