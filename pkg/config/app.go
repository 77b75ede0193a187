package config

var AppVersion = "DEVELOPMENT"

const (
	AppName  = "dsbmc"
	LogFile  = "dsbmc-cli.log"
	LockFile = "dsbmc-automount.lock"
	CfgFile  = "dsbmc.toml"
)
