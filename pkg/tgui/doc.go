// Package tgui holds small helpers for Telegram HTML messages and inline
// keyboards.
package tgui
