// Команда tokenhash генерирует bcrypt-хеш операторского API-токена.
//
// Использование:
//
//	tokenhash my-secret-token
//	tokenhash -cost 14 my-secret-token
//	tokenhash            (токен читается со stdin, не попадает в историю shell)
//
// Полученный хеш идет в переменную окружения API_TOKEN_HASH.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/crypto"
)

func main() {
	cost := flag.Int("cost", crypto.DefaultCost, "bcrypt cost (4-31)")
	flag.Parse()

	token := flag.Arg(0)
	if token == "" {
		fmt.Fprint(os.Stderr, "Enter API token: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "failed to read token: %v\n", err)
			os.Exit(1)
		}
		token = strings.TrimSpace(line)
	}

	hash, err := crypto.HashTokenWithCost(token, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
