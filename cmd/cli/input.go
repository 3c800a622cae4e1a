package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// getPassword prints prompt to w and reads a line from the terminal
// without echo.
func getPassword(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// promptPassword asks for the password and its confirmation. Whether they
// match is left to the service.
func promptPassword(w io.Writer) (string, string, error) {
	password, err := getPassword(w, "Enter password: ")
	if err != nil {
		return "", "", err
	}
	confirm, err := getPassword(w, "Repeat password: ")
	if err != nil {
		return "", "", err
	}
	return password, confirm, nil
}
