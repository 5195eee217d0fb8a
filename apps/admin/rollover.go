package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/academia/core/promotion"
)

func (cli *commandLine) rollover(schoolID, fromID, toID int64) error {
	rep, err := cli.promotionSvc.Execute(context.Background(), promotion.ExecuteParams{
		SchoolID:      schoolID,
		FromSessionID: fromID,
		ToSessionID:   toID,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "%s -> %s\n%s\n\n", rep.FromSession, rep.ToSession, rep)
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAN\tPASS\tOUTCOME\tFROM\tTO\tFEES\tREASON")
	for _, o := range rep.Outcomes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", o.StudentPAN, o.Pass, o.Outcome, o.FromClass, o.ToClass, o.FeesAdded, o.Reason)
	}
	return w.Flush()
}
