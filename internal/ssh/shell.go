package ssh

// shell.go defines string constants for the well-known Linux shells 'ExecIn'
// can sequence commands into.

type Shell = string

const (
	ShellSh   Shell = "sh"
	ShellBash Shell = "bash"
	ShellZSH  Shell = "zsh"
)
