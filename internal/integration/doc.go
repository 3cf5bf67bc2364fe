// Package integration runs parachuted and parachutectl together on simulated hardware.
package integration
