// Package instance guards against two daemons driving the same GPIO lines.
package instance
