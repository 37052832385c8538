package main

import (
	"context"
	"fmt"
	"text/tabwriter"
)

func (cli *commandLine) register(courseID, dir string) error {
	pkg, units, err := cli.content.Register(context.Background(), cli.writer, courseID, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "registered package %s for course %s (%d units)\n", pkg.ID, pkg.CourseID, len(units))
	return nil
}

func (cli *commandLine) resolve(courseID string) error {
	res, err := cli.resolver.Resolve(context.Background(), courseID)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "package %s %q (SCORM %s) at %s\n", res.Package.ID, res.Package.Title, res.Package.Version, res.Package.BasePath)
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tPOS\tUNIT\tLAUNCH URL")
	for i, unit := range res.Units {
		marker := ""
		if i == res.InitialIndex {
			marker = "*"
		}
		launchURL, err := cli.resolver.LaunchURL(res.Package, unit)
		if err != nil {
			launchURL = fmt.Sprintf("<%v>", err)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", marker, unit.Position, unit.ID, launchURL)
	}
	return w.Flush()
}
