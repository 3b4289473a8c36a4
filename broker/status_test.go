// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"slices"
	"strings"
	"testing"
)

func TestFormatRegistrations(t *testing.T) {
	t.Parallel()
	bound := &Subscriber{id: 9}

	got := FormatRegistrations([]Registration{
		{ID: 1, ImageName: "disk0", SectorSize: 512, HasMetadata: true},
		{ID: 2},
		{ID: 3, ImageName: "/vm/win7.img", SectorSize: 512, HasMetadata: true, Delivery: bound},
		{ID: 1234, ImageName: "big", SectorSize: 4096, HasMetadata: true},
	})

	want := " ID : Status : HDD Filename\n" +
		" --   ------   ----------------------------------------\n" +
		"001 :   open : disk0\n" +
		"003 :   USED : /vm/win7.img\n" +
		"1234 :   open : big\n"
	if got != want {
		t.Errorf("FormatRegistrations:\n got %q\nwant %q", got, want)
	}
}

func TestFormatRegistrationsEmpty(t *testing.T) {
	t.Parallel()
	want := " ID : Status : HDD Filename\n" +
		" --   ------   ----------------------------------------\n"
	if got := FormatRegistrations(nil); got != want {
		t.Errorf("empty listing = %q, want headings only", got)
	}
}

func TestFormatWaiting(t *testing.T) {
	t.Parallel()
	got := FormatWaiting([]WaitingSubscriber{
		{ImageName: "disk0", Subscriber: &Subscriber{id: 4}},
		{ImageName: "disk1", Subscriber: &Subscriber{id: 4}},
		{ImageName: "disk0", Subscriber: &Subscriber{id: 17}},
	})

	want := " SOCK :  HDD Filename\n" +
		" ----   ----------------------------------------\n" +
		" 0004 : disk0\n" +
		" 0004 : disk1\n" +
		" 0017 : disk0\n"
	if got != want {
		t.Errorf("FormatWaiting:\n got %q\nwant %q", got, want)
	}
}

func TestHelpTextListsEveryCommand(t *testing.T) {
	t.Parallel()
	lines := strings.Split(HelpText, "\n")
	for _, command := range []string{"   l - ", "   w - ", "   i <vm id> - ", "   n <vm filename> - ", "   h - "} {
		if !slices.ContainsFunc(lines, func(line string) bool { return strings.HasPrefix(line, command) }) {
			t.Errorf("help text missing %q", command)
		}
	}
}
