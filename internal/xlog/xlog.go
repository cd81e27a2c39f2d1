// Package xlog is a small leveled logger, adapted from the teacher's
// utils/logger package and extended with Warnf/Errorf to match the
// report.Severity vocabulary the rest of this module uses.
package xlog

import "fmt"

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var currentLevel = Info

func SetLevel(l Level) {
	currentLevel = l
}

func IsVerbose() bool {
	return currentLevel <= Debug
}

func Debugf(format string, args ...any) {
	if currentLevel <= Debug {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

func Infof(format string, args ...any) {
	if currentLevel <= Info {
		fmt.Printf(format+"\n", args...)
	}
}

func Warnf(format string, args ...any) {
	if currentLevel <= Warn {
		fmt.Printf("[WARN] "+format+"\n", args...)
	}
}

func Errorf(format string, args ...any) {
	if currentLevel <= Error {
		fmt.Printf("[ERROR] "+format+"\n", args...)
	}
}
