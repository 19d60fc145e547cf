// Package fs abstracts the file operations behind local blob writes so
// tests can inject failures.
//
// Production code uses [Default]:
//
//	f, err := fs.Default.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
//
// Tests wrap it in a [FaultyFS]:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("images/", fs.Fault{FailAfterBytes: 16})
//
// Operations take no context; local file calls are not interruptible.
package fs
