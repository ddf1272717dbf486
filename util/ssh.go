package util

import (
	"os"

	"golang.org/x/crypto/ssh"
)

// PublicKeyFile returns an AuthMethod backed by the private key in filename.
func PublicKeyFile(filename string) (ssh.AuthMethod, error) {
	buffer, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	key, err := ssh.ParsePrivateKey(buffer)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(key), nil
}
