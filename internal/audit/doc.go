// Package audit defines the data model shared by every stage of the SEO audit
// pipeline: the Audit lifecycle record, crawled pages, extracted signals,
// rule-based issues, the compiled report, and the optional AI analysis.
//
// It also declares the narrow interfaces (stores, queue, clock, id
// generation) that the orchestrator and its collaborators are wired through.
package audit
