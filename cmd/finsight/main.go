// Command finsight runs spending analytics against the configured ledger.
package main

func main() {
	Execute()
}
