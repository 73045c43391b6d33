// Package cache stores compiled commands in SQLite so tools can skip
// recompiling schemas between runs.
//
//	c, err := cache.Open(ctx, "commands.db")
//	cmd, err := c.GetOrCompile(ctx, "point", func() (command.Command, error) {
//		return comp.Compile(pointType)
//	})
//
// Entries are keyed by name and FormatVersion. Commands that reference
// child commands are refused because handles do not survive the process.
package cache
