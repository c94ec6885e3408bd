// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/dunedaq/dqm/dump"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// DumpMain is wrapped by NewDumpCommand.
var DumpMain *dump.Main

// NewDumpCommand returns a new cobra command wrapping DumpMain.
func NewDumpCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	DumpMain = dump.NewMain(stderr)
	dumpCommand := &cobra.Command{
		Use:   "dump <location>...",
		Short: "dump - write unpacked tables to disk",
		Long: `Unpacks every record of each location and saves the finalized
tables in a store directory which inspect can read back. fake:// is the
only scheme built into this binary; other inputs need a reader registered
with dqm.RegisterOpener.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return DumpMain.Run(ctx, args...)
		},
	}
	flags := dumpCommand.Flags()
	err := commandeer.Flags(flags, DumpMain)
	if err != nil {
		panic(err)
	}
	return dumpCommand
}

func init() {
	subcommandFns["dump"] = NewDumpCommand
}
