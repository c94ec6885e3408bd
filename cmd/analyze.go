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

	"github.com/dunedaq/dqm/analyze"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// AnalyzeMain is wrapped by NewAnalyzeCommand.
var AnalyzeMain *analyze.Main

// NewAnalyzeCommand returns a new cobra command wrapping AnalyzeMain.
func NewAnalyzeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	AnalyzeMain = analyze.NewMain(stdout, stderr)
	analyzeCommand := &cobra.Command{
		Use:   "analyze <location>...",
		Short: "analyze - run the data quality checks over trigger records",
		Long: `Unpacks records from each location in turn, runs the standard
check suite over the resulting tables and prints the latest results.
Locations are URLs whose scheme selects the record reader, for example
fake://?records=10&pds=2 for synthetic data. fake:// is the only scheme
built into this binary; other inputs need a reader registered with
dqm.RegisterOpener by a program embedding the dqm packages.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return AnalyzeMain.Run(ctx, args...)
		},
	}
	flags := analyzeCommand.Flags()
	err := commandeer.Flags(flags, AnalyzeMain)
	if err != nil {
		panic(err)
	}
	return analyzeCommand
}

func init() {
	subcommandFns["analyze"] = NewAnalyzeCommand
}
