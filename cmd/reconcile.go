package cmd

import (
	"context"
	"fmt"
)

// Reconcile adopts orphaned artifacts and prunes stale registry entries
func Reconcile(ctx context.Context, configPath string) {
	o := openOffline(configPath)
	defer o.Close()

	report, err := o.engine.Reconcile(ctx, o.roots)
	if err != nil {
		o.Close()
		HandleError(err)
	}

	for _, p := range report.Adopted {
		fmt.Printf("  adopted  %s\n", p)
	}
	for _, p := range report.Pruned {
		fmt.Printf("  pruned   %s\n", p)
	}
	for _, p := range report.Corrupt {
		fmt.Printf("  corrupt  %s\n", p)
	}
	fmt.Printf("Reconciled: %d adopted, %d pruned, %d corrupt\n",
		len(report.Adopted), len(report.Pruned), len(report.Corrupt))
}
