package template

import "github.com/superagent-ai/vibe0/model"

// builtins returns the built-in template set. Returned fresh on each call so
// file overrides never mutate shared state.
func builtins() []*Template {
	return []*Template{
		{
			ID:   "nextjs",
			Name: "Next.js",
			Description: "Build scalable web applications with server-side rendering, " +
				"static site generation, and API routes",
			Repository: "https://github.com/superagent-ai/vibekit-nextjs",
			StartCommands: []StartCommand{
				{Command: "npm i", Status: model.PhaseInstallingDeps},
				{Command: "npm run dev", Status: model.PhaseStartingDev, Background: true},
			},
			SystemPrompt: "# GOAL\nYou are an helpful assistant that is tasked with helping the user build a NextJS app.\n" +
				"- The NextJS dev server is running on port 3000.\n" +
				"- ShadCN UI is installed, together with all the ShadCN components.\n",
		},
		{
			ID:   "nextjs-supabase-auth",
			Name: "Next.js + Supabase + Auth",
			Description: "Build a production-ready SaaS with authentication, database, " +
				"and real-time features out of the box",
			Repository: "https://github.com/vercel/next.js/tree/canary/examples/with-supabase",
			StartCommands: []StartCommand{
				{Command: "npm i", Status: model.PhaseInstallingDeps},
				{Command: "npm run dev", Status: model.PhaseStartingDev, Background: true},
			},
			SystemPrompt: "# GOAL\nYou are an helpful assistant that is tasked with helping the user build a NextJS app.\n" +
				"- The NextJS dev server is running on port 3000.\n" +
				"- ShadCN UI is installed, together with all the ShadCN components.\n" +
				"- Supabase CLI and Auth is installed and ready to be used if needed.\n",
		},
		{
			ID:   "nextjs-convex-clerk",
			Name: "Next.js + Convex + Clerk",
			Description: "Create collaborative apps with real-time sync, instant auth, " +
				"and seamless user management",
			Repository: "https://github.com/get-convex/convex-clerk-users-table",
			StartCommands: []StartCommand{
				{Command: "npm i", Status: model.PhaseInstallingDeps},
				{Command: "npm run dev", Status: model.PhaseStartingDev, Background: true},
				{Command: "npx convex dev", Status: model.PhaseStartingDev, Background: true},
			},
			SystemPrompt: "# GOAL\nYou are an helpful assistant that is tasked with helping the user build a NextJS app.\n" +
				"- The NextJS dev server is running on port 3000.\n" +
				"- The convex command npx convex dev is running\n" +
				"- ShadCN UI is installed, together with all the ShadCN components.\n" +
				"- Convex CLI is installed and ready to be used if needed.\n",
		},
		{
			ID:   "shopify-hydrogen",
			Name: "Shopify",
			Description: "Build fast headless commerce storefronts with Shopify's " +
				"official framework Hydrogen.",
			Repository: "superagent-ai/vibekit-shopify",
			StartCommands: []StartCommand{
				{Command: "npm i", Status: model.PhaseInstallingDeps},
				{Command: "npm i -g @shopify/cli@latest", Status: model.PhaseInstallingDeps},
				{Command: `echo 'SESSION_SECRET="foobar"' > .env`, Status: model.PhaseInstallingDeps},
				{Command: "shopify hydrogen dev --codegen --host", Status: model.PhaseStartingDev, Background: true},
			},
			Secrets: map[string]string{
				"SESSION_SECRET": "foobar",
			},
			SystemPrompt: "# GOAL\nYou are an helpful assistant that is tasked with helping the user build a Shopify Hydrogen app.\n" +
				"- The hydrogen server is running on port 3000.\n" +
				"- The Shopify CLI is installed and ready to be used if needed.\n",
		},
		{
			ID:          "fastapi-nextjs",
			Name:        "FastAPI + Next.js",
			Description: "Build modern full-stack apps with FastAPI backend and Next.js frontend.",
			Repository:  "tiangolo/full-stack-fastapi-template",
			StartCommands: []StartCommand{
				{Command: "npm i", Status: model.PhaseInstallingDeps},
				{Command: "npm run dev", Status: model.PhaseStartingDev, Background: true},
			},
			SystemPrompt: "# GOAL\nYou are an helpful assistant that is tasked with helping the user build a FastAPI and Next.js app.\n" +
				"- The NextJS dev server is running on port 3000.\n" +
				"- The FastAPI server is running on port 8000.\n" +
				"- ShadCN UI is installed, together with all the ShadCN components.\n",
		},
	}
}
