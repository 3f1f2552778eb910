package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"go.klb.dev/x11clip/internal/clipboard"
	"go.klb.dev/x11clip/internal/xconn"
)

// textPlainUTF8 is the MIME-style target toolkits ask for besides UTF8_STRING.
const textPlainUTF8 = "text/plain;charset=utf-8"

// openClipboard connects to the configured display.
func openClipboard(v *viper.Viper) (*clipboard.Clipboard, error) {
	cb, err := clipboard.New(v.GetString("display"), clipboard.WithProperty(v.GetString("property")))
	if err != nil {
		return nil, fmt.Errorf("open display: %w", err)
	}
	return cb, nil
}

// resolveSelection maps the short selection names to their atoms and
// interns anything else.
func resolveSelection(ctx *clipboard.Context, name string) (xconn.Atom, error) {
	switch strings.ToLower(name) {
	case "", "clipboard", "c", "b":
		return ctx.Atoms.Clipboard, nil
	case "primary", "p":
		return ctx.Atoms.Primary, nil
	case "secondary":
		return xconn.AtomSecondary, nil
	}
	return ctx.Atom(name)
}

// resolveTarget maps text aliases to UTF8_STRING and STRING and interns
// anything else, e.g. "image/png".
func resolveTarget(ctx *clipboard.Context, name string) (xconn.Atom, error) {
	switch strings.ToLower(name) {
	case "", "text", "utf8", "utf8_string":
		return ctx.Atoms.UTF8String, nil
	case "string":
		return ctx.Atoms.String, nil
	case "targets":
		return ctx.Atoms.Targets, nil
	}
	return ctx.Atom(name)
}

// offersFor builds the batch published for data under target. UTF-8 text is
// also offered as STRING and text/plain so older and toolkit clients find it.
func offersFor(ctx *clipboard.Context, target xconn.Atom, data []byte) ([]clipboard.Offer, error) {
	if target != ctx.Atoms.UTF8String {
		return []clipboard.Offer{{Target: target, Data: data}}, nil
	}
	plain, err := ctx.Atom(textPlainUTF8)
	if err != nil {
		return nil, err
	}
	return []clipboard.Offer{
		{Target: ctx.Atoms.UTF8String, Data: data},
		{Target: ctx.Atoms.String, Data: data},
		{Target: plain, Data: data},
	}, nil
}
