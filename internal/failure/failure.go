// Package failure holds the fixed set of error categories surfaced to the
// user and the error type that carries one of them.
package failure

import (
	"errors"
	"fmt"
)

// Category selects the user-facing message for a failed operation.
type Category string

const (
	InternetError   Category = "INTERNET_ERROR"
	ToolsError      Category = "TOOLS_ERROR"
	FreeSpaceError  Category = "FREE_SPACE_ERROR"
	NoDisksError    Category = "NO_DISKS_ERROR"
	DownloadError   Category = "DOWNLOAD_ERROR"
	MD5Error        Category = "MD5_ERROR"
	UnmountError    Category = "UNMOUNT_ERROR"
	FormatError     Category = "FORMAT_ERROR"
	BurnError       Category = "BURN_ERROR"
	EjectError      Category = "EJECT_ERROR"
	ServerDownError Category = "SERVER_DOWN_ERROR"
)

// Message is the title/description pair shown to the end user.
type Message struct {
	Title       string
	Description string
}

var messages = map[Category]Message{
	InternetError: {
		Title:       "No internet connection..",
		Description: "You need to be connected to the internet to download the OS image",
	},
	ToolsError: {
		Title:       "Missing tools..",
		Description: "A tool required to decompress or write the image could not be found",
	},
	FreeSpaceError: {
		Title:       "Insufficient available space..",
		Description: "Please free some local disk space for the OS image and try again",
	},
	NoDisksError: {
		Title:       "SD card not found..",
		Description: "Make sure you have inserted the SD card correctly",
	},
	DownloadError: {
		Title:       "There was an error downloading the OS image..",
		Description: "Please check your internet connection or try again later",
	},
	MD5Error: {
		Title:       "Could not verify download integrity..",
		Description: "The OS image download may have been corrupted - please try again",
	},
	UnmountError: {
		Title:       "Could not unmount the SD card..",
		Description: "Close any program using the SD card and try again",
	},
	FormatError: {
		Title:       "Formatting the SD card failed..",
		Description: "Make sure the SD card is not write protected and try again",
	},
	BurnError: {
		Title:       "Burning the OS image failed..",
		Description: "Make sure the SD card is still correctly inserted and try again",
	},
	EjectError: {
		Title:       "Could not eject the SD card..",
		Description: "The image was written, but please eject the SD card manually",
	},
	ServerDownError: {
		Title:       "The download server is not responding..",
		Description: "Our servers may be down at the moment, please try again later",
	},
}

// Message returns the fixed user-facing text for c.
func (c Category) Message() Message {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[BurnError]
}

// Categories lists every category in a stable order.
func Categories() []Category {
	return []Category{
		InternetError, ToolsError, FreeSpaceError, NoDisksError, DownloadError,
		MD5Error, UnmountError, FormatError, BurnError, EjectError, ServerDownError,
	}
}

// Error is an error tagged with a Category. Diagnostic keeps the raw tool
// output for support, it is never the primary message.
type Error struct {
	Category   Category
	Diagnostic string
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an *Error for err with the given diagnostic text.
func New(category Category, err error, diagnostic string) *Error {
	return &Error{Category: category, Err: err, Diagnostic: diagnostic}
}

// Wrap tags err with category. A nil err stays nil, and an err that already
// carries a category keeps it.
func Wrap(category Category, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Category: category, Err: err}
}

// CategoryOf reports the category carried by err, if any.
func CategoryOf(err error) (Category, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category, true
	}
	return "", false
}

// DiagnosticOf returns the raw diagnostic attached to err, if any.
func DiagnosticOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Diagnostic
	}
	return ""
}
