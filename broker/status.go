// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"strings"
)

// HelpText is the reply to the "h" command.
const HelpText = "Disk Introspection Server\n" +
	"Commands\n" +
	"   l - list running VM's\n" +
	"   w - list subscribers waiting for a VM\n" +
	"   i <vm id> - subscribe to VM with specified ID\n" +
	"   n <vm filename> - subscribe to VM with specified filename\n" +
	"   h - show this help\n"

const (
	registrationsHeading = " ID : Status : HDD Filename\n" +
		" --   ------   ----------------------------------------\n"
	waitingHeading = " SOCK :  HDD Filename\n" +
		" ----   ----------------------------------------\n"
)

// FormatRegistrations renders the reply to the "l" command. Producers
// that have not yet sent metadata are omitted. A VM with a bound
// subscriber shows as USED.
func FormatRegistrations(registrations []Registration) string {
	var builder strings.Builder
	builder.WriteString(registrationsHeading)
	for _, registration := range registrations {
		if !registration.HasMetadata {
			continue
		}
		status := "open"
		if registration.Delivery != nil {
			status = "USED"
		}
		fmt.Fprintf(&builder, "%03d : %6s : %s\n", registration.ID, status, registration.ImageName)
	}
	return builder.String()
}

// FormatWaiting renders the reply to the "w" command, one row per
// waiting entry keyed by subscriber ID.
func FormatWaiting(waiting []WaitingSubscriber) string {
	var builder strings.Builder
	builder.WriteString(waitingHeading)
	for _, entry := range waiting {
		fmt.Fprintf(&builder, " %04d : %s\n", entry.Subscriber.ID(), entry.ImageName)
	}
	return builder.String()
}
