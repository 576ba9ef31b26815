// Package supabase implements store.ResultStore against a Supabase project
// through its PostgREST interface, using postgrest-go. It writes the
// sessions and tool_results tables the hosted project defines; a
// tool_results row carries only session_id, results and developable.
package supabase
