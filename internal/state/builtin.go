package state

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"os/user"
	"runtime"
	"strconv"
	"time"
)

var builtins = map[string]func() string{
	"CURRENT_DATE":      func() string { return time.Now().Format("2006-01-02") },
	"CURRENT_TIME":      func() string { return time.Now().Format("15:04:05") },
	"CURRENT_DATETIME":  func() string { return time.Now().Format("2006-01-02 15:04:05") },
	"CURRENT_YEAR":      func() string { return strconv.Itoa(time.Now().Year()) },
	"CURRENT_MONTH":     func() string { return fmt.Sprintf("%02d", int(time.Now().Month())) },
	"CURRENT_DAY":       func() string { return fmt.Sprintf("%02d", time.Now().Day()) },
	"CURRENT_WEEKDAY":   func() string { return time.Now().Weekday().String() },
	"CURRENT_TIMESTAMP": func() string { return strconv.FormatInt(time.Now().Unix(), 10) },
	"TIMEZONE": func() string {
		name, _ := time.Now().Zone()
		return name
	},
	"USERNAME": func() string {
		if u, err := user.Current(); err == nil {
			return u.Username
		}
		return os.Getenv("USER")
	},
	"PLATFORM":     func() string { return runtime.GOOS },
	"ARCHITECTURE": func() string { return runtime.GOARCH },
	"GO_VERSION":   runtime.Version,
	"HOME": func() string {
		home, _ := os.UserHomeDir()
		return home
	},
	"PROCESS_ID": func() string { return strconv.Itoa(os.Getpid()) },
	"WORKING_DIR": func() string {
		wd, _ := os.Getwd()
		return wd
	},
	"HOSTNAME": func() string {
		h, _ := os.Hostname()
		return h
	},
	"RANDOM_INT": func() string { return randInt(10001).String() },
	"RANDOM_HEX": func() string { return fmt.Sprintf("0x%x", randInt(1<<62)) },
	"RANDOM_STRING": func() string {
		const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		b := make([]byte, 10)
		for i := range b {
			b[i] = alphabet[randInt(int64(len(alphabet))).Int64()]
		}
		return string(b)
	},
}

func randInt(max int64) *big.Int {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return big.NewInt(0)
	}
	return n
}

// IsBuiltinVariable은 name이 builtin 변수인지 확인합니다.
func IsBuiltinVariable(name string) bool {
	_, ok := builtins[name]
	return ok
}

// BuiltinVariable은 builtin 변수 값을 계산합니다.
func BuiltinVariable(name string) string {
	fn, ok := builtins[name]
	if !ok {
		return ""
	}
	return fn()
}
