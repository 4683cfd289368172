// Package config loads the MQTT interface configuration.
//
// Values are resolved in three layers, each overriding the previous one:
// built-in defaults (Default), an optional YAML file (Load) and MQTTIFACE_*
// environment variables. The result is checked by Validate, which reports
// every problem at once rather than stopping at the first.
//
// Broker credentials belong in MQTTIFACE_MQTT_USERNAME and
// MQTTIFACE_MQTT_PASSWORD rather than in a file checked into source control.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.Interface.GetCommandTimeout()
package config
