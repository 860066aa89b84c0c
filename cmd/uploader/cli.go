package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

func printUsage() {
	fmt.Println("Usage: uploader --port <device> <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status                         Get bootloader status")
	fmt.Println("  upload [-bank N] [-version N] <file>   Upload firmware to a bank")
	fmt.Println("  set-bank <bank>                Set the active bank for the next boot")
	fmt.Println("  wipe                           Reset boot data, invalidating all firmware banks")
	fmt.Println("  reboot                         Reboot the device")
}

// confirmWipe asks for interactive y/N confirmation before a destructive
// WipeAll that can brick a device if interrupted. Outside a real terminal
// (piped stdin, CI) there is nobody to answer the prompt, so it refuses
// rather than hangs.
func confirmWipe() bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Print("This invalidates all firmware banks. Continue? [y/N] ")
	reply, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	reply = strings.ToLower(strings.TrimSpace(reply))
	return reply == "y" || reply == "yes"
}

func run(args []string) error {
	fs := flag.NewFlagSet("uploader", flag.ExitOnError)
	port := fs.String("port", "", "Serial port (e.g. /dev/ttyACM0)")
	assumeYes := fs.Bool("yes", false, "Skip confirmation prompts")
	fs.Parse(args)

	rest := fs.Args()
	if *port == "" || len(rest) == 0 {
		printUsage()
		os.Exit(1)
	}

	t, err := OpenTransport(*port)
	if err != nil {
		return err
	}
	defer t.Close()

	switch rest[0] {
	case "status":
		return cmdStatus(t)

	case "upload":
		uploadFs := flag.NewFlagSet("upload", flag.ExitOnError)
		bank := uploadFs.Uint("bank", 0, "Target bank (0 = A, 1 = B)")
		version := uploadFs.Uint("version", 1, "Firmware version number")
		uploadFs.Parse(rest[1:])
		if uploadFs.NArg() < 1 {
			return fmt.Errorf("usage: upload [-bank N] [-version N] <file>")
		}
		return cmdUpload(t, uploadFs.Arg(0), uint8(*bank), uint32(*version))

	case "set-bank":
		if len(rest) < 2 {
			return fmt.Errorf("usage: set-bank <bank>")
		}
		var bank uint
		if _, err := fmt.Sscanf(rest[1], "%d", &bank); err != nil {
			return fmt.Errorf("invalid bank %q: %w", rest[1], err)
		}
		return cmdSetBank(t, uint8(bank))

	case "wipe":
		if !*assumeYes && !confirmWipe() {
			fmt.Println("Aborted.")
			return nil
		}
		return cmdWipe(t)

	case "reboot":
		return cmdReboot(t)

	default:
		printUsage()
		os.Exit(1)
		return nil
	}
}
