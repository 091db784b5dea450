package main

import (
	"fmt"
	"os"
	"strconv"
)

// A stand-in for picotool used by subprocess tests. Behavior is driven by
// environment variables so each test can script it:
//
//	FAKE_PICOTOOL_INFO   printed verbatim by `info`
//	FAKE_PICOTOOL_EXIT   exit code for every command (default 0)
//	FAKE_PICOTOOL_LOG    file that receives one line per invocation
func main() {
	if p := os.Getenv("FAKE_PICOTOOL_LOG"); p != "" {
		if f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			fmt.Fprintln(f, os.Args[1:])
			_ = f.Close()
		}
	}
	code, _ := strconv.Atoi(os.Getenv("FAKE_PICOTOOL_EXIT"))
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Println("picotool v1.1.2 (fake)")
		case "info":
			fmt.Print(os.Getenv("FAKE_PICOTOOL_INFO"))
		case "load":
			if code != 0 {
				fmt.Fprintln(os.Stderr, "ERROR: The device was asleep")
			} else {
				fmt.Println("Loading into Flash: [==============================]  100%")
			}
		}
	}
	os.Exit(code)
}
