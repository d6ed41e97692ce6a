package main

import "song-recognition/cmd"

func main() {
	cmd.Execute()
}
