package common

const (
	CheckMark   = "\033[32m✔\033[0m"
	WarningSign = "\033[31m✘\033[0m"
	InfoSign    = "\033[34mℹ\033[0m"
)
