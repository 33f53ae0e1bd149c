// Command admissions ingests and serves national admission results.
package main

import "github.com/JakeFAU/admissions-crawler/cmd"

func main() {
	cmd.Execute()
}
